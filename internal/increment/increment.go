// Package increment holds the bid increment table. All amounts are in
// lakh, the smallest unit used anywhere in the system.
package increment

// NextIncrement returns the minimum raise over the current bid.
// Tiers: [30,100)→5, [100,200)→10, [200,500)→20, [500,∞)→25.
func NextIncrement(currentBid int64) int64 {
	switch {
	case currentBid < 100:
		return 5
	case currentBid < 200:
		return 10
	case currentBid < 500:
		return 20
	default:
		return 25
	}
}

// MinimumNextBid returns the lowest amount the next bid may carry.
// With no bid on the table yet, the minimum is the base price itself.
func MinimumNextBid(currentBid *int64, basePrice int64) int64 {
	if currentBid == nil {
		return basePrice
	}
	return *currentBid + NextIncrement(*currentBid)
}
