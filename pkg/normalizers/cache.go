package normalizers

// Cache memoizes normalization results for one resolution run. Each scope
// worker owns its own Cache so parallel workers share no mutable state.
// Not safe for concurrent use.
type Cache struct {
	titles  map[string]string
	persons map[string]string
}

// NewCache creates an empty per-run normalization cache
func NewCache() *Cache {
	return &Cache{
		titles:  make(map[string]string),
		persons: make(map[string]string),
	}
}

// Title returns the cached NormalizeTitle result for s
func (c *Cache) Title(s string) string {
	if v, ok := c.titles[s]; ok {
		return v
	}
	v := NormalizeTitle(s)
	c.titles[s] = v
	return v
}

// Person returns the cached NormalizePersonName result for s
func (c *Cache) Person(s string) string {
	if v, ok := c.persons[s]; ok {
		return v
	}
	v := NormalizePersonName(s)
	c.persons[s] = v
	return v
}

// Len reports how many distinct values the cache holds
func (c *Cache) Len() int {
	return len(c.titles) + len(c.persons)
}
