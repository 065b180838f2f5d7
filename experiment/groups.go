package experiment

import (
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"github.com/teranos/ablation/errors"
)

// Role of a collection or query in the design.
type Role string

const (
	RoleTest       Role = "test"
	RoleControl    Role = "control"
	RoleUnassigned Role = "unassigned"
)

// GroupManager partitions collections and queries into test and control
// groups.
type GroupManager struct {
	collections       []string
	controlPercentage float64
	seed              uint64

	mu        sync.Mutex
	test      []string
	control   []string
	rotations uint64
	queries   map[string]Role
}

// NewGroupManager validates the design parameters.
func NewGroupManager(collections []string, controlPercentage float64, seed int64) (*GroupManager, error) {
	c := NewCombination(collections...)
	if len(c) < 2 {
		return nil, errors.Configurationf("test/control partitioning needs at least 2 collections, got %d", len(c))
	}
	if controlPercentage < 0 || controlPercentage > 1 {
		return nil, errors.Configurationf("control percentage must be within [0, 1], got %g", controlPercentage)
	}
	if seed < 0 {
		return nil, errors.Configurationf("seed must be non-negative, got %d", seed)
	}
	return &GroupManager{
		collections:       c,
		controlPercentage: controlPercentage,
		seed:              uint64(seed),
		queries:           make(map[string]Role),
	}, nil
}

// ControlCount is the control group size implied by the percentage, at least
// one and leaving at least one test collection.
func (m *GroupManager) ControlCount() int {
	n := len(m.collections)
	count := max(1, int(float64(n)*m.controlPercentage))
	return min(count, n-1)
}

// Assign partitions the collections. A controlCount of 0 uses ControlCount.
// Sizes are clamped so both groups keep at least one member.
func (m *GroupManager) Assign(controlCount int) (test, control []string, err error) {
	if controlCount < 0 {
		return nil, nil, errors.Configurationf("control count cannot be negative, got %d", controlCount)
	}
	if controlCount == 0 {
		controlCount = m.ControlCount()
	}
	controlCount = min(max(controlCount, 1), len(m.collections)-1)

	m.mu.Lock()
	defer m.mu.Unlock()

	r := rand.New(rand.NewPCG(m.seed, streamAssign))
	perm := r.Perm(len(m.collections))
	m.control = m.control[:0]
	m.test = m.test[:0]
	for i, idx := range perm {
		if i < controlCount {
			m.control = append(m.control, m.collections[idx])
		} else {
			m.test = append(m.test, m.collections[idx])
		}
	}
	sort.Strings(m.control)
	sort.Strings(m.test)
	m.rotations = 0

	return m.groupsLocked()
}

// Rotate moves k collections from test to control and k from control to
// test. k is clamped to the smaller group. Group sizes and their union are
// unchanged.
func (m *GroupManager) Rotate(k int) (test, control []string, err error) {
	if k < 0 {
		return nil, nil, errors.Configurationf("rotation count cannot be negative, got %d", k)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.test) == 0 {
		return nil, nil, errors.Configurationf("collections must be assigned before rotation")
	}
	k = min(k, len(m.test), len(m.control))

	m.rotations++
	r := rand.New(rand.NewPCG(m.seed, streamRotate+m.rotations<<8))

	toControl := pickIndexes(r, len(m.test), k)
	toTest := pickIndexes(r, len(m.control), k)

	newTest := make([]string, 0, len(m.test))
	newControl := make([]string, 0, len(m.control))
	for i, name := range m.test {
		if toControl[i] {
			newControl = append(newControl, name)
		} else {
			newTest = append(newTest, name)
		}
	}
	for i, name := range m.control {
		if toTest[i] {
			newTest = append(newTest, name)
		} else {
			newControl = append(newControl, name)
		}
	}
	sort.Strings(newTest)
	sort.Strings(newControl)
	m.test, m.control = newTest, newControl

	return m.groupsLocked()
}

func pickIndexes(r *rand.Rand, n, k int) map[int]bool {
	picked := make(map[int]bool, k)
	for _, i := range r.Perm(n)[:k] {
		picked[i] = true
	}
	return picked
}

func (m *GroupManager) groupsLocked() ([]string, []string, error) {
	return slices.Clone(m.test), slices.Clone(m.control), nil
}

// Test returns the current test collections.
func (m *GroupManager) Test() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.test)
}

// Control returns the current control collections.
func (m *GroupManager) Control() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.control)
}

// CollectionRole reports the current role of a collection.
func (m *GroupManager) CollectionRole(name string) Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case slices.Contains(m.test, name):
		return RoleTest
	case slices.Contains(m.control, name):
		return RoleControl
	default:
		return RoleUnassigned
	}
}

// AssignQuery places a query in the control group with probability equal to
// the control percentage. The draw depends only on the seed and the query
// id, and the first answer is remembered.
func (m *GroupManager) AssignQuery(queryID string) Role {
	m.mu.Lock()
	defer m.mu.Unlock()

	if role, ok := m.queries[queryID]; ok {
		return role
	}
	h := fnv.New64a()
	h.Write([]byte(queryID))
	r := rand.New(rand.NewPCG(m.seed, h.Sum64()))

	role := RoleTest
	if r.Float64() < m.controlPercentage {
		role = RoleControl
	}
	m.queries[queryID] = role
	return role
}

// IsTestQuery reports whether the query belongs to the test group.
func (m *GroupManager) IsTestQuery(queryID string) bool {
	return m.AssignQuery(queryID) == RoleTest
}

// IsControlQuery reports whether the query belongs to the control group.
func (m *GroupManager) IsControlQuery(queryID string) bool {
	return m.AssignQuery(queryID) == RoleControl
}
