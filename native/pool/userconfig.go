package pool

// UserConfiguration packs two bits per reserve id across all 128 possible
// reserves: bit 2i flags outstanding debt, bit 2i+1 flags use as collateral.
// All accessors are allocation free.
type UserConfiguration struct {
	Data [4]uint64
}

func bitPosition(reserveID uint8, offset uint) (word int, bit uint) {
	pos := uint(reserveID)*2 + offset
	return int(pos / 64), pos % 64
}

// SetBorrowing flags or clears the borrowing bit for the reserve.
func (c *UserConfiguration) SetBorrowing(reserveID uint8, borrowing bool) {
	word, bit := bitPosition(reserveID, 0)
	if borrowing {
		c.Data[word] |= 1 << bit
		return
	}
	c.Data[word] &^= 1 << bit
}

// SetUsingAsCollateral flags or clears the collateral bit for the reserve.
func (c *UserConfiguration) SetUsingAsCollateral(reserveID uint8, useAsCollateral bool) {
	word, bit := bitPosition(reserveID, 1)
	if useAsCollateral {
		c.Data[word] |= 1 << bit
		return
	}
	c.Data[word] &^= 1 << bit
}

// IsBorrowing reports whether the reserve carries debt for the user.
func (c UserConfiguration) IsBorrowing(reserveID uint8) bool {
	word, bit := bitPosition(reserveID, 0)
	return c.Data[word]&(1<<bit) != 0
}

// IsUsingAsCollateral reports whether the reserve backs the user's borrows.
func (c UserConfiguration) IsUsingAsCollateral(reserveID uint8) bool {
	word, bit := bitPosition(reserveID, 1)
	return c.Data[word]&(1<<bit) != 0
}

// UsingAsCollateralOrBorrowing reports whether either bit is set.
func (c UserConfiguration) UsingAsCollateralOrBorrowing(reserveID uint8) bool {
	return c.IsBorrowing(reserveID) || c.IsUsingAsCollateral(reserveID)
}

// IsBorrowingAny reports whether the user has debt on any reserve.
func (c UserConfiguration) IsBorrowingAny() bool {
	const borrowingMask = 0x5555555555555555
	for _, word := range c.Data {
		if word&borrowingMask != 0 {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the user participates in no reserve at all.
func (c UserConfiguration) IsEmpty() bool {
	for _, word := range c.Data {
		if word != 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy of the configuration.
func (c *UserConfiguration) Clone() *UserConfiguration {
	if c == nil {
		return &UserConfiguration{}
	}
	clone := *c
	return &clone
}
