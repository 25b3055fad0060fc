package main

// isValidSnowflake reports whether id looks like a Discord snowflake: a
// non-empty decimal string that fits in 64 bits.
func isValidSnowflake(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
