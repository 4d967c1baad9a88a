package inference

import (
	"math"
)

// Model evaluates a batch of encoded positions. input holds batch positions
// laid out [batch, C, S, S]. policy must hold batch*S*S probabilities and
// value batch entries in [-1, 1].
type Model interface {
	Run(input []float32, batch int) (policy []float32, value []float32, err error)
}

// UniformModel is the batched form of Uniform.
type UniformModel struct {
	Cells int
	Value float32
}

func (m UniformModel) Run(_ []float32, batch int) ([]float32, []float32, error) {
	policy := make([]float32, 0, batch*m.Cells)
	value := make([]float32, batch)
	for i := 0; i < batch; i++ {
		policy = append(policy, uniformPolicy(m.Cells)...)
		value[i] = m.Value
	}
	return policy, value, nil
}

// RandomModel is the batched form of Random.
type RandomModel struct {
	Cells int
	rand  *Random
}

func NewRandomModel(cells int, seed uint64) *RandomModel {
	return &RandomModel{Cells: cells, rand: NewRandom(seed)}
}

func (m *RandomModel) Run(_ []float32, batch int) ([]float32, []float32, error) {
	m.rand.mu.Lock()
	defer m.rand.mu.Unlock()
	policy := make([]float32, batch*m.Cells)
	value := make([]float32, batch)
	m.rand.fill(policy)
	for i := range value {
		value[i] = m.rand.value()
	}
	return policy, value, nil
}

// softmax normalises logits in place.
func softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float32
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxV)))
		logits[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range logits {
			logits[i] *= inv
		}
	}
}
