package productmgmt

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateParent checks that a step of type child may sit under parent.
// A nil parent is only allowed for non-features.
func ValidateParent(child StepType, parent *WorkflowStep) error {
	if !child.Valid() {
		return ErrInvalidStepType
	}
	if child == StepFeature {
		if parent == nil {
			return ErrFeatureNeedsProduct
		}
		if parent.StepType != StepProduct {
			return ErrFeatureUnderProduct
		}
		return nil
	}
	if parent == nil {
		return nil
	}
	if child == StepVision {
		return &HierarchyError{Child: child, Parent: parent.StepType}
	}
	// Organization portfolios hang directly off the organization vision.
	if child == StepPortfolio && parent.StepType == StepVision {
		return nil
	}
	if child.Level() != parent.StepType.Level()+1 {
		return &HierarchyError{Child: child, Parent: parent.StepType}
	}
	return nil
}

// checkChain verifies that a parent chain, nearest first, never revisits a
// step and does not contain self.
func checkChain(self string, chain []*WorkflowStep) error {
	seen := make(map[string]bool, len(chain))
	for _, s := range chain {
		if (self != "" && s.ID == self) || seen[s.ID] {
			return ErrCircularReference
		}
		seen[s.ID] = true
	}
	return nil
}

// rootVision returns the last element of chain when it is a vision.
func rootVision(chain []*WorkflowStep) *WorkflowStep {
	if len(chain) == 0 {
		return nil
	}
	if root := chain[len(chain)-1]; root.StepType == StepVision {
		return root
	}
	return nil
}

var prefixStopWords = map[string]bool{"THE": true, "AND": true, "FOR": true, "WITH": true}

// ReferencePrefix derives the three letter ticket prefix from a title:
// "Global Payments Platform" gives "GPP", "Mobile Banking" gives "MBA".
func ReferencePrefix(title string) string {
	words := strings.Fields(strings.ToUpper(title))
	var meaningful []string
	for _, w := range words {
		if len([]rune(w)) > 2 && !prefixStopWords[w] {
			meaningful = append(meaningful, w)
		}
	}
	if len(meaningful) == 0 {
		meaningful = words
	}

	var prefix string
	switch {
	case len(meaningful) >= 3:
		for _, w := range meaningful[:3] {
			prefix += firstRunes(w, 1)
		}
	case len(meaningful) == 2:
		prefix = firstRunes(meaningful[0], 1) + firstRunes(meaningful[1], 2)
	case len(meaningful) == 1:
		prefix = firstRunes(meaningful[0], 3)
	default:
		prefix = "WRK"
	}
	return strings.ToUpper(firstRunes(prefix, 3))
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// nextReference returns prefix-NNNN, one past the highest number among
// existing references with that prefix.
func nextReference(prefix string, existing []string) string {
	highest := 0
	for _, ref := range existing {
		rest, ok := strings.CutPrefix(ref, prefix+"-")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s-%04d", prefix, highest+1)
}

// pathSegment turns a step into a README directory name.
func pathSegment(s *WorkflowStep) string {
	title := strings.ToLower(s.Title)
	title = strings.NewReplacer(" ", "_", "/", "_").Replace(title)
	return string(s.StepType) + "_" + title
}

// ReadmePath is the repository path of a step's README. lineage runs from
// the root to the step itself.
func ReadmePath(lineage []*WorkflowStep) string {
	parts := make([]string, 0, len(lineage)+2)
	parts = append(parts, "product_discovery")
	for _, s := range lineage {
		parts = append(parts, pathSegment(s))
	}
	parts = append(parts, "README.md")
	return strings.Join(parts, "/")
}
