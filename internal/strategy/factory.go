package strategy

import "errors"

// Strategy version identifiers.
const (
	VersionHSMS1 = "hsms-1.0"
	VersionHSMS2 = "hsms-2.0"
)

// Factory errors
var (
	ErrUnknownVersion = errors.New("unknown strategy version")
	ErrInvalidWindow  = errors.New("strategy windows must be positive")
)

// FromVersion creates a Strategy by version name. cfg2 supplies the
// foreign-flow parameters; its embedded Config is used for both
// versions, so callers configure one bundle regardless of version.
func FromVersion(version string, cfg2 Config2) (Strategy, error) {
	if err := validate(cfg2); err != nil {
		return nil, err
	}

	switch version {
	case VersionHSMS1:
		return NewHSMS(cfg2.Config), nil
	case VersionHSMS2:
		return NewHSMS2(cfg2), nil
	default:
		return nil, ErrUnknownVersion
	}
}

func validate(cfg Config2) error {
	if cfg.MAWindow <= 0 || cfg.MomentumWindow <= 0 || cfg.VolumeLookback <= 0 || cfg.ForeignLookback <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
