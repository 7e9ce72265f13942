package util

// Calculate turns 1-based page/size query values into an offset and limit.
// Out-of-range input is clamped: page floors at 1, size outside (0,100]
// falls back to 10.
func Calculate(page, size int) (from, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	from = (page - 1) * size
	return from, size
}
