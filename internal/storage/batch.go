package storage

// RowsPerStatement returns how many rows of width cols fit in one
// multi-row INSERT under paramLimit bound parameters, capped by batch when
// batch > 0. It is at least 1.
func RowsPerStatement(paramLimit, cols, batch int) int {
	if cols <= 0 {
		return 1
	}
	n := paramLimit / cols
	if batch > 0 && batch < n {
		n = batch
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Chunks splits rows into consecutive slices of at most size rows. The
// returned slices alias rows.
func Chunks(rows [][]any, size int) [][][]any {
	if size < 1 {
		size = 1
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
