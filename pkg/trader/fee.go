package trader

// Fee returns the exchange's trading fee in cents for buying contracts at
// price cents:
//
//	ceil(0.07 * contracts * (price/100) * (1 - price/100) * 100)
//
// Computed in integer arithmetic as ceil(7*contracts*price*(100-price)/10000)
// so the ceiling is exact; float rounding here would under-provision
// capital on boundary values.
func Fee(contracts, price int) int {
	numerator := 7 * contracts * price * (100 - price)
	return (numerator + 9999) / 10000
}
