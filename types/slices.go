package types

// GrowSlice extends myslice to newLen, keeping the existing entries and
// filling new ones with fill. Shorter requests leave the slice untouched.
func GrowSlice[T any](myslice []T, newLen int, fill T) []T {
	l := len(myslice)
	if l >= newLen {
		return myslice
	}
	var biggerSlice []T
	if cap(myslice) >= newLen {
		biggerSlice = myslice[:newLen]
	} else {
		biggerSlice = make([]T, newLen, newLen+newLen/2)
		copy(biggerSlice, myslice)
	}
	for i := l; i < newLen; i++ {
		biggerSlice[i] = fill
	}
	return biggerSlice
}
