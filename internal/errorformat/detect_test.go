package errorformat

import "testing"

func TestDetectToolBareName(t *testing.T) {
	name, err := DetectTool([]string{"ruff", "check", "."}, DefaultRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "ruff" {
		t.Errorf("name = %q, want ruff", name)
	}
}

func TestDetectToolPythonModuleForm(t *testing.T) {
	name, err := DetectTool([]string{"python", "-m", "mypy", "src/"}, DefaultRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "mypy" {
		t.Errorf("name = %q, want mypy", name)
	}
}

func TestDetectToolPython3ModuleForm(t *testing.T) {
	name, err := DetectTool([]string{"python3", "-m", "pytest"}, DefaultRegistry())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "pytest" {
		t.Errorf("name = %q, want pytest", name)
	}
}

func TestDetectToolUnknown(t *testing.T) {
	_, err := DetectTool([]string{"some-custom-checker"}, DefaultRegistry())
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestDetectToolEmptyCommand(t *testing.T) {
	_, err := DetectTool(nil, DefaultRegistry())
	if err == nil {
		t.Fatal("expected error for empty command")
	}
}
