package metrics

// Op is one edit operation in an alignment.
type Op byte

const (
	OpEqual Op = '='
	OpSub   Op = 'S'
	OpIns   Op = 'I'
	OpDel   Op = 'D'
)

// Step pairs a reference token with a hypothesis token. Ref is -1 for
// insertions, Hyp is -1 for deletions.
type Step struct {
	Op       Op
	Ref, Hyp int
}

// Counts totals the edit operations of an alignment.
type Counts struct {
	Ins, Del, Sub int
}

func (c Counts) Errors() int { return c.Ins + c.Del + c.Sub }

// Align computes a minimum edit distance alignment of hyp against ref.
// Ties prefer substitution, then deletion, then insertion.
func Align(ref, hyp []string) ([]Step, Counts) {
	n, m := len(ref), len(hyp)
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j-1]+cost, d[i-1][j]+1, d[i][j-1]+1)
		}
	}

	var steps []Step
	var c Counts
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1] && d[i][j] == d[i-1][j-1]:
			steps = append(steps, Step{OpEqual, i - 1, j - 1})
			i, j = i-1, j-1
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			steps = append(steps, Step{OpSub, i - 1, j - 1})
			c.Sub++
			i, j = i-1, j-1
		case i > 0 && d[i][j] == d[i-1][j]+1:
			steps = append(steps, Step{OpDel, i - 1, -1})
			c.Del++
			i--
		default:
			steps = append(steps, Step{OpIns, -1, j - 1})
			c.Ins++
			j--
		}
	}
	for l, r := 0, len(steps)-1; l < r; l, r = l+1, r-1 {
		steps[l], steps[r] = steps[r], steps[l]
	}
	return steps, c
}
