package models

// Quote is one instrument's book top at one instant. Ephemeral: every
// decision point fetches a fresh one.
type Quote struct {
	Instrument    string
	BestBid       float64
	BestAsk       float64
	BestBidAmount float64
	BestAskAmount float64
	MarkPrice     float64
	IndexPrice    float64
	LastPrice     float64
	Delta         float64 // [-1, 1]
}

// SpreadRatio is (ask-bid)/(ask+bid). A missing side or a crossed book
// degenerates to 1 so the quote is treated as unusable, never negative.
func (q Quote) SpreadRatio() float64 {
	if q.BestBid <= 0 || q.BestAsk <= 0 || q.BestAsk < q.BestBid {
		return 1
	}
	return (q.BestAsk - q.BestBid) / (q.BestAsk + q.BestBid)
}

// Mid is the book midpoint, falling back to mark price when a side is missing.
func (q Quote) Mid() float64 {
	if q.BestBid > 0 && q.BestAsk > 0 {
		return (q.BestBid + q.BestAsk) / 2
	}
	return q.MarkPrice
}

func (q Quote) Crossed() bool {
	return q.BestBid > 0 && q.BestAsk > 0 && q.BestBid > q.BestAsk
}

// Candidate is a selection-time tuple. Never persisted.
type Candidate struct {
	Instrument    Instrument
	Quote         Quote
	DeltaDistance float64
	SpreadRatio   float64
}
