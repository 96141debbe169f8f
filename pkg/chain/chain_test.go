package chain

import (
	"errors"
	"testing"
)

// arm builds a small three-joint arm hanging off a fixed base.
func arm() []Link {
	return []Link{
		{Name: "base", Type: Fixed},
		{Name: "shoulder", Type: Revolute, Parent: "base", Range: &[2]float64{0, 180}},
		{Name: "upper_arm", Type: Fixed, Parent: "shoulder"},
		{Name: "elbow", Type: Revolute, Parent: "upper_arm"},
		{Name: "wrist", Type: Revolute, Parent: "elbow", Range: &[2]float64{-90, 90}},
	}
}

func TestBuild_JointOrdering(t *testing.T) {
	m, err := Build(arm())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.DOF() != 3 {
		t.Fatalf("DOF = %d, want 3", m.DOF())
	}
	want := []string{"shoulder", "elbow", "wrist"}
	for j, name := range want {
		got, err := m.JointName(j)
		if err != nil {
			t.Fatalf("JointName(%d): %v", j, err)
		}
		if got != name {
			t.Errorf("JointName(%d) = %q, want %q", j, got, name)
		}
		idx, ok := m.JointIndex(name)
		if !ok || idx != j {
			t.Errorf("JointIndex(%q) = %d,%v, want %d,true", name, idx, ok, j)
		}
	}
}

func TestBuild_Ranges(t *testing.T) {
	m, err := Build(arm())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	min, max, bounded := m.JointRange(0)
	if !bounded || min != 0 || max != 180 {
		t.Errorf("JointRange(0) = %v,%v,%v, want 0,180,true", min, max, bounded)
	}
	if _, _, bounded := m.JointRange(1); bounded {
		t.Error("JointRange(1) should be unbounded")
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		links []Link
	}{
		{"empty", nil},
		{"two roots", []Link{
			{Name: "a", Type: Fixed},
			{Name: "b", Type: Revolute},
		}},
		{"no root", []Link{
			{Name: "a", Type: Fixed, Parent: "b"},
			{Name: "b", Type: Fixed, Parent: "a"},
		}},
		{"unresolved parent", []Link{
			{Name: "a", Type: Fixed},
			{Name: "b", Type: Revolute, Parent: "nope"},
		}},
		{"cycle", []Link{
			{Name: "root", Type: Fixed},
			{Name: "a", Type: Revolute, Parent: "c"},
			{Name: "b", Type: Revolute, Parent: "a"},
			{Name: "c", Type: Revolute, Parent: "b"},
		}},
		{"self parent", []Link{
			{Name: "root", Type: Fixed},
			{Name: "a", Type: Revolute, Parent: "a"},
		}},
		{"duplicate name", []Link{
			{Name: "a", Type: Fixed},
			{Name: "a", Type: Revolute, Parent: "a"},
		}},
		{"bad joint type", []Link{
			{Name: "a", Type: "prismatic"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.links)
			if err == nil {
				t.Fatal("Build should fail")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("error is %T, want *ConfigError", err)
			}
		})
	}
}

func TestBuild_AllRevolute(t *testing.T) {
	links := []Link{{Name: "j0", Type: Revolute}}
	for i := 1; i < 13; i++ {
		links = append(links, Link{
			Name:   "j" + string(rune('0'+i%10)) + string(rune('a'+i)),
			Type:   Revolute,
			Parent: links[i-1].Name,
		})
	}
	m, err := Build(links)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.DOF() != 13 {
		t.Errorf("DOF = %d, want 13", m.DOF())
	}
}
