package migcheck

import "github.com/pkg/errors"

// Phase is one of the lifecycle operations of a Check
type Phase int

const (
	PhaseSeed Phase = iota + 1
	PhaseVerifyUpgrade
	PhaseVerifyDowngrade
)

func (p Phase) String() string {
	switch p {
	case PhaseSeed:
		return "seed"
	case PhaseVerifyUpgrade:
		return "verify_upgrade"
	case PhaseVerifyDowngrade:
		return "verify_downgrade"
	}

	return "unknown"
}

func ParsePhase(s string) (Phase, error) {
	switch s {
	case "seed", "pre":
		return PhaseSeed, nil
	case "verify_upgrade", "check":
		return PhaseVerifyUpgrade, nil
	case "verify_downgrade", "post":
		return PhaseVerifyDowngrade, nil
	}

	return 0, errors.Wrapf(ErrUnknownPhase, "[%s]", s)
}
