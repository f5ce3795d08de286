package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrPermissionDenied    ErrCode = "PERMISSION_DENIED"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrExamNotFound            ErrCode = "EXAM_NOT_FOUND"
	ErrAttemptNotFound         ErrCode = "ATTEMPT_NOT_FOUND"
	ErrResultNotFound          ErrCode = "RESULT_NOT_FOUND"
	ErrAttemptAlreadySubmitted ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrInvalidAnswer           ErrCode = "INVALID_ANSWER"
	ErrInvalidState            ErrCode = "INVALID_STATE"
	ErrSweepInProgress         ErrCode = "SWEEP_IN_PROGRESS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrCandidateAccessOnly:
		return "Sumber daya ini terbatas untuk peserta ujian."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan atau tidak aktif."
	case ErrAttemptNotFound:
		return "Percobaan ujian tidak ditemukan."
	case ErrResultNotFound:
		return "Hasil ujian tidak ditemukan."
	case ErrAttemptAlreadySubmitted:
		return "Jawaban untuk percobaan ini sudah dikumpulkan."
	case ErrInvalidAnswer:
		return "Jawaban tidak sesuai dengan soal ujian."
	case ErrInvalidState:
		return "Status percobaan ujian tidak valid."
	case ErrSweepInProgress:
		return "Pembersihan percobaan kedaluwarsa sedang berjalan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
