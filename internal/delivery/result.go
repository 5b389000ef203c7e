package delivery

// Kind tags a delivery outcome.
type Kind int

const (
	Success Kind = iota
	ValidationFailure
	RecipientUnregistered
	TransmissionFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ValidationFailure:
		return "validation_failure"
	case RecipientUnregistered:
		return "recipient_unregistered"
	case TransmissionFailure:
		return "transmission_failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of one delivery. Only the fields of its Kind are set:
// Payload for Success, FieldErrors for ValidationFailure, Cause for
// TransmissionFailure.
type Result struct {
	Kind        Kind
	Payload     any
	FieldErrors map[string]string
	Cause       error
}

func succeeded(payload any) Result { return Result{Kind: Success, Payload: payload} }

func invalid(fields map[string]string) Result {
	return Result{Kind: ValidationFailure, FieldErrors: fields}
}

func unregistered() Result { return Result{Kind: RecipientUnregistered} }

func failed(cause error) Result { return Result{Kind: TransmissionFailure, Cause: cause} }
