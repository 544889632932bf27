package domain

// Challenge is the sample protected resource.
type Challenge struct {
	ID          int64
	Title       string
	Description string
	Reward      int
	Active      bool
}
