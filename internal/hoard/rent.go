package hoard

// LamportsPerByte is the rent-exempt deposit charged per byte of account data.
const LamportsPerByte uint64 = 89_784

// RentExemptionLamports returns the deposit that keeps an account of size bytes rent exempt.
func RentExemptionLamports(size int) uint64 {
	if size <= 0 {
		return 0
	}
	return uint64(size) * LamportsPerByte
}

// AccountSpace returns the allocation a hoard account needs.
func AccountSpace() int {
	return HoardStateSize
}
