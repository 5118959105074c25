package game

// Settings tune scoring and lobby rules for one game.
type Settings struct {
	PointsBase        int     `json:"pointsBase" yaml:"pointsBase"`
	SpeedMultiplier   float64 `json:"speedMultiplier" yaml:"speedMultiplier"`
	AllowAnswerChange bool    `json:"allowAnswerChange" yaml:"allowAnswerChange"`
	LateJoin          bool    `json:"lateJoin" yaml:"lateJoin"`
	StreakBonus       bool    `json:"streakBonus" yaml:"streakBonus"`
}

func DefaultSettings() Settings {
	return Settings{
		PointsBase:      1000,
		SpeedMultiplier: 0.5,
		StreakBonus:     true,
	}
}

// Overrides is a partial Settings sent by a host when creating a game.
// Nil fields keep the server default.
type Overrides struct {
	PointsBase        *int     `json:"pointsBase,omitempty"`
	SpeedMultiplier   *float64 `json:"speedMultiplier,omitempty"`
	AllowAnswerChange *bool    `json:"allowAnswerChange,omitempty"`
	LateJoin          *bool    `json:"lateJoin,omitempty"`
	StreakBonus       *bool    `json:"streakBonus,omitempty"`
}

// Apply returns base with the overrides applied. Non-positive points and
// negative multipliers are ignored.
func (o *Overrides) Apply(base Settings) Settings {
	if o == nil {
		return base
	}
	if o.PointsBase != nil && *o.PointsBase > 0 {
		base.PointsBase = *o.PointsBase
	}
	if o.SpeedMultiplier != nil && *o.SpeedMultiplier >= 0 {
		base.SpeedMultiplier = *o.SpeedMultiplier
	}
	if o.AllowAnswerChange != nil {
		base.AllowAnswerChange = *o.AllowAnswerChange
	}
	if o.LateJoin != nil {
		base.LateJoin = *o.LateJoin
	}
	if o.StreakBonus != nil {
		base.StreakBonus = *o.StreakBonus
	}
	return base
}
