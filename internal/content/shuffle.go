package content

import (
	"hash/fnv"
	"math/rand"
)

// Shuffler reorders a hierarchy deterministically from Seed. Each section
// and each question gets its own stream derived from its id, so adding a
// question to one section does not reshuffle the others.
type Shuffler struct {
	Seed      int64
	Questions bool
	Options   bool
}

func (s Shuffler) Apply(nodes []SectionNode) {
	for i := range nodes {
		s.section(&nodes[i])
		for j := range nodes[i].Children {
			s.section(&nodes[i].Children[j])
		}
	}
}

func (s Shuffler) section(n *SectionNode) {
	if s.Questions {
		qs := n.Questions
		s.rng(n.ID).Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}
	if s.Options {
		for i := range n.Questions {
			opts := n.Questions[i].Question.Options
			s.rng(n.Questions[i].ExamQuestionID).Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
		}
	}
}

func (s Shuffler) rng(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(s.Seed ^ int64(h.Sum64())))
}
