package domain

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	OrderID     int64  `json:"order_id"`
	Rating      int    `json:"rating"`
	Description string `json:"review_desc"`
}

func (r Review) Validate() error {
	if r.Rating < MinRating || r.Rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// RatingTotals is the raw per-seller aggregate read from storage.
type RatingTotals struct {
	Sum   int64
	Count int64
}

type RatingStats struct {
	AvgRating   float64 `json:"avg_rating"`
	ReviewCount int64   `json:"review_count"`
}

func (t RatingTotals) Stats() RatingStats {
	if t.Count <= 0 {
		return RatingStats{}
	}
	return RatingStats{AvgRating: float64(t.Sum) / float64(t.Count), ReviewCount: t.Count}
}
