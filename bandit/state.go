package bandit

type State int

const (
	Initializing State = iota
	RoundStart
	Estimating
	FeatureDraw
	Selecting
	Acting
	Observing
	Updating
	Reporting
	Terminal
)

var stateNames = [...]string{
	Initializing: "Initializing",
	RoundStart:   "RoundStart",
	Estimating:   "Estimating",
	FeatureDraw:  "FeatureDraw",
	Selecting:    "Selecting",
	Acting:       "Acting",
	Observing:    "Observing",
	Updating:     "Updating",
	Reporting:    "Reporting",
	Terminal:     "Terminal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}
