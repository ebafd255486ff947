package core

// IntegerCounter is a plain, non-atomic counter used as the execution budget
// of one drain session. It is only ever touched by the primary drainer.
type IntegerCounter struct {
	value int
}

// NewIntegerCounter returns a counter set to v.
func NewIntegerCounter(v int) *IntegerCounter {
	return &IntegerCounter{value: v}
}

func (c *IntegerCounter) Set(v int) { c.value = v }
func (c *IntegerCounter) Get() int  { return c.value }

// DecrementAndGet decrements the counter and returns the new value.
func (c *IntegerCounter) DecrementAndGet() int {
	c.value--
	return c.value
}
