package device

// BusyWait runs tripcount rounds of 64 dependent multiply-adds seeded with i
// and returns the last value so the work cannot be discarded. Its cost is
// linear in tripcount.
func BusyWait(tripcount int64, i float32) float32 {
	x := float32(1.3)
	y := i
	for j := int64(0); j < tripcount; j++ {
		for k := 0; k < 16; k++ {
			x = y*x + y
			y = x*y + x
			x = y*x + y
			y = x*y + x
		}
	}
	return y
}
