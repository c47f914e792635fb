package initwfn

import (
	"encoding/json"
	"testing"

	"gorgonia.org/tensor"
)

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		data string
		want Type
	}{
		{`{"Type": "GlorotU", "Config": {"Gain": 1}}`, GlorotU},
		{`{"Type": "Uniform", "Config": {"Low": -0.003, "High": 0.003}}`,
			Uniform},
	}

	for _, test := range tests {
		var i InitWFn
		if err := json.Unmarshal([]byte(test.data), &i); err != nil {
			t.Errorf("%v: unmarshal: %v", test.want, err)
			continue
		}
		if i.Type != test.want || i.Config.Type() != test.want {
			t.Errorf("type: want(%v) have(%v)", test.want, i.Type)
		}
		if i.InitWFn() == nil {
			t.Errorf("%v: gorgonia InitWFn not created", test.want)
		}
	}
}

func TestUniformWeights(t *testing.T) {
	init, err := NewUniform(-0.5, 0.5)
	if err != nil {
		t.Fatalf("newUniform: %v", err)
	}
	weights, ok := init.InitWFn()(tensor.Float64, 10, 10).([]float64)
	if !ok {
		t.Fatalf("expected float64 weights")
	}
	if len(weights) != 100 {
		t.Fatalf("weights: want(100) have(%v)", len(weights))
	}
	for _, w := range weights {
		if w < -0.5 || w > 0.5 {
			t.Errorf("weight %v outside [-0.5, 0.5]", w)
		}
	}
}

func TestInvalidInitWFn(t *testing.T) {
	if _, err := NewUniform(1, -1); err == nil {
		t.Errorf("expected error for reversed bounds")
	}
	if _, err := NewGlorotU(0); err == nil {
		t.Errorf("expected error for zero gain")
	}

	var i InitWFn
	if err := json.Unmarshal([]byte(`{"Type": "He", "Config": {}}`),
		&i); err == nil {
		t.Errorf("expected error for unknown type")
	}
}
