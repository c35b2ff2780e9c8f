package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
)

var (
	// ErrTooFewMembers is returned when a class is too small to stratify.
	ErrTooFewMembers = fmt.Errorf("%w: class too small to stratify", apperrors.ErrTrainingData)

	// ErrSplitConfig is returned for unusable split parameters.
	ErrSplitConfig = fmt.Errorf("%w: split", apperrors.ErrConfiguration)
)

// ClassSizeError reports the class that could not be stratified.
type ClassSizeError struct {
	Class    int // label code
	Members  int
	Required int
}

func (e *ClassSizeError) Error() string {
	return fmt.Sprintf("class %d has %d member(s), need at least %d", e.Class, e.Members, e.Required)
}

// Unwrap lets callers match ErrTooFewMembers.
func (e *ClassSizeError) Unwrap() error {
	return ErrTooFewMembers
}

// classMembers groups row indices by label, classes in ascending order.
func classMembers(y []int) ([]int, map[int][]int) {
	members := lo.GroupBy(lo.Range(len(y)), func(i int) int { return y[i] })
	classes := lo.Keys(members)
	slices.Sort(classes)
	return classes, members
}

// StratifiedSplit partitions row indices into train and test sets that keep
// the class proportions of y. The test set holds ceil(testSize*len(y)) rows.
// Every class needs at least two members.
func StratifiedSplit(y []int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("%w: test size must be in (0, 1), got %g", ErrSplitConfig, testSize)
	}

	n := len(y)
	classes, members := classMembers(y)
	for _, c := range classes {
		if len(members[c]) < 2 {
			return nil, nil, &ClassSizeError{Class: c, Members: len(members[c]), Required: 2}
		}
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, fmt.Errorf("%w: %d train and %d test rows cannot hold %d classes",
			ErrSplitConfig, nTrain, nTest, len(classes))
	}

	alloc := allocate(classes, members, nTest, n)

	rng := rand.New(rand.NewPCG(seed, seed))
	for _, c := range classes {
		idx := slices.Clone(members[c])
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:alloc[c]]...)
		train = append(train, idx[alloc[c]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })

	return train, test, nil
}

// allocate spreads nTest rows over classes proportionally, handing leftover
// rows to the largest fractional shares. A class keeps at least one training row.
func allocate(classes []int, members map[int][]int, nTest, n int) map[int]int {
	type share struct {
		class int
		frac  float64
	}

	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(len(members[c])) * float64(nTest) / float64(n)
		whole := min(int(math.Floor(exact)), len(members[c])-1)
		alloc[c] = whole
		assigned += whole
		shares = append(shares, share{class: c, frac: exact - math.Floor(exact)})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].frac > shares[j].frac
	})

	for assigned < nTest {
		progressed := false
		for _, s := range shares {
			if assigned == nTest {
				break
			}
			if alloc[s.class] < len(members[s.class])-1 {
				alloc[s.class]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc
}

// Fold is one cross-validation partition.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits row indices into k folds that keep class
// proportions. Rows are not shuffled: each class is cut into k contiguous
// chunks in row order. A class with fewer than k members lands one row per
// fold in the first folds; only when every class is that small does it fail.
func StratifiedKFold(y []int, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: k-fold needs k >= 2, got %d", ErrSplitConfig, k)
	}

	classes, members := classMembers(y)
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: k-fold needs at least one row", ErrSplitConfig)
	}
	if small := UndersizedClasses(y, k); len(small) == len(classes) {
		largest := lo.MaxBy(small, func(a, b *ClassSizeError) bool { return a.Members > b.Members })
		return nil, largest
	}

	foldOf := make([]int, len(y))
	for _, c := range classes {
		idx := members[c]
		size, extra := len(idx)/k, len(idx)%k
		pos := 0
		for f := range k {
			chunk := size
			if f < extra {
				chunk++
			}
			for _, row := range idx[pos : pos+chunk] {
				foldOf[row] = f
			}
			pos += chunk
		}
	}

	folds := make([]Fold, k)
	for row, f := range foldOf {
		for g := range folds {
			if g == f {
				folds[g].Test = append(folds[g].Test, row)
			} else {
				folds[g].Train = append(folds[g].Train, row)
			}
		}
	}
	return folds, nil
}

// UndersizedClasses reports every class of y with fewer than k members, in
// class order.
func UndersizedClasses(y []int, k int) []*ClassSizeError {
	classes, members := classMembers(y)
	var out []*ClassSizeError
	for _, c := range classes {
		if n := len(members[c]); n < k {
			out = append(out, &ClassSizeError{Class: c, Members: n, Required: k})
		}
	}
	return out
}

// AsClassSizeError extracts a ClassSizeError from err.
func AsClassSizeError(err error) (*ClassSizeError, bool) {
	var cse *ClassSizeError
	ok := errors.As(err, &cse)
	return cse, ok
}
