package domain

// HitRecord is the persisted visit counter for a single target.
type HitRecord struct {
	Target string
	Count  int64
}
