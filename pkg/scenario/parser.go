package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single scenario YAML file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided scenario file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses scenario YAML content. A file is either a step list, or a
// config document and a step list separated by "---".
func Parse(data []byte, sourcePath string) (*Scenario, error) {
	parts := splitYAMLDocuments(string(data))

	sc := &Scenario{
		SourcePath: sourcePath,
	}

	if len(parts) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty scenario file",
		}
	}

	if len(parts) == 1 {
		if err := parseSteps(parts[0], sc); err != nil {
			return nil, err
		}
	} else {
		if err := parseConfig(parts[0], sc); err != nil {
			return nil, err
		}
		if err := parseSteps(parts[1], sc); err != nil {
			return nil, err
		}
	}

	if len(sc.Steps) == 0 {
		return nil, &ParseError{Path: sourcePath, Message: "scenario has no steps"}
	}

	return sc, nil
}

func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseConfig(content string, sc *Scenario) error {
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return &ParseError{
			Path:    sc.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}
	sc.Config = config
	return nil
}

func parseSteps(content string, sc *Scenario) error {
	var rawSteps []yaml.Node
	if err := yaml.Unmarshal([]byte(content), &rawSteps); err != nil {
		return &ParseError{
			Path:    sc.SourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}

	for _, node := range rawSteps {
		step, err := parseStep(&node, sc.SourcePath)
		if err != nil {
			return err
		}
		sc.Steps = append(sc.Steps, step)
	}

	return nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	if node.Kind == yaml.ScalarNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("step %q needs parameters", node.Value),
		}
	}

	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping",
		}
	}

	stepType, valueNode := extractStepType(node)
	if stepType == "" || valueNode == nil {
		key := ""
		if len(node.Content) > 0 {
			key = node.Content[0].Value
		}
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("unknown step type: %s", key),
		}
	}

	return decodeStep(StepType(stepType), valueNode, sourcePath)
}

func extractStepType(node *yaml.Node) (string, *yaml.Node) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if isStepType(key) {
			return key, node.Content[i+1]
		}
	}
	return "", nil
}

func isStepType(key string) bool {
	switch StepType(key) {
	case StepNavigate, StepFill, StepClick, StepWaitFor, StepSwitchContext,
		StepAssertCount, StepManualCheckpoint, StepAlert, StepScript:
		return true
	}
	return false
}

//nolint:gocyclo
func decodeStep(stepType StepType, valueNode *yaml.Node, sourcePath string) (Step, error) {
	switch stepType {
	case StepNavigate:
		var s NavigateStep
		if valueNode.Kind == yaml.ScalarNode {
			s.URL = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepFill:
		var s FillStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		loc, err := decodeTarget(valueNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Locator = loc
		s.StepType = stepType
		return &s, nil

	case StepClick:
		var s ClickStep
		if valueNode.Kind == yaml.MappingNode {
			if err := valueNode.Decode(&s); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		}
		loc, err := decodeTarget(valueNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Locator = loc
		s.StepType = stepType
		return &s, nil

	case StepWaitFor:
		return parseWaitForStep(valueNode, sourcePath)

	case StepSwitchContext:
		var s SwitchContextStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Await = ContextEvent(valueNode.Value)
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertCount:
		var s AssertCountStep
		var exact struct {
			Equals *int `yaml:"equals"`
		}
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if err := valueNode.Decode(&exact); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		if exact.Equals != nil {
			s.AtLeast = *exact.Equals
			s.AtMost = exact.Equals
		}
		loc, err := decodeTarget(valueNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Locator = loc
		s.StepType = stepType
		return &s, nil

	case StepManualCheckpoint:
		var s ManualCheckpointStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Prompt = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAlert:
		var s AlertStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Action = AlertAction(valueNode.Value)
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepScript:
		var s ScriptStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Script = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil
	}

	return nil, &ParseError{
		Path:    sourcePath,
		Line:    valueNode.Line,
		Message: fmt.Sprintf("unknown step type: %s", stepType),
	}
}

// parseWaitForStep handles both the inline single-condition form and the
// anyOf list form.
func parseWaitForStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	s := &WaitForStep{BaseStep: BaseStep{StepType: StepWaitFor}}
	if valueNode.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: sourcePath, Line: valueNode.Line, Message: "waitFor must be a mapping"}
	}
	if err := valueNode.Decode(s); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	var raw struct {
		AnyOf []yaml.Node `yaml:"anyOf"`
	}
	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	if len(raw.AnyOf) == 0 {
		c, err := decodeCondition(valueNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.AnyOf = []Condition{c}
		return s, nil
	}

	for i := range raw.AnyOf {
		c, err := decodeCondition(&raw.AnyOf[i], sourcePath)
		if err != nil {
			return nil, err
		}
		s.AnyOf = append(s.AnyOf, c)
	}
	return s, nil
}

func decodeCondition(node *yaml.Node, sourcePath string) (Condition, error) {
	var raw struct {
		Name         string    `yaml:"name"`
		URLContains  string    `yaml:"urlContains"`
		Element      yaml.Node `yaml:"element"`
		AlertPresent bool      `yaml:"alertPresent"`
		Contexts     int       `yaml:"contexts"`
	}
	if node.Kind != yaml.MappingNode {
		return Condition{}, &ParseError{Path: sourcePath, Line: node.Line, Message: "condition must be a mapping"}
	}
	if err := node.Decode(&raw); err != nil {
		return Condition{}, wrapParseError(sourcePath, node.Line, err)
	}

	c := Condition{
		Name:         raw.Name,
		URLContains:  raw.URLContains,
		AlertPresent: raw.AlertPresent,
		Contexts:     raw.Contexts,
	}
	if raw.Element.Kind != 0 {
		loc, err := decodeTarget(&raw.Element, sourcePath)
		if err != nil {
			return Condition{}, err
		}
		c.Element = loc
	}
	return c, nil
}

// decodeTarget reads a locator from a scalar ("xpath=//a", "#id") or from the
// css/xpath/tag/link/partialLink/locator keys of a mapping.
func decodeTarget(node *yaml.Node, sourcePath string) (core.Locator, error) {
	if node.Kind == yaml.ScalarNode {
		loc, err := core.ParseLocator(node.Value)
		if err != nil {
			return core.Locator{}, wrapParseError(sourcePath, node.Line, err)
		}
		return loc, nil
	}

	var t struct {
		CSS         string `yaml:"css"`
		XPath       string `yaml:"xpath"`
		Tag         string `yaml:"tag"`
		Link        string `yaml:"link"`
		PartialLink string `yaml:"partialLink"`
		Locator     string `yaml:"locator"`
	}
	if err := node.Decode(&t); err != nil {
		return core.Locator{}, wrapParseError(sourcePath, node.Line, err)
	}

	var found []core.Locator
	add := func(strategy core.Strategy, selector string) {
		if selector != "" {
			found = append(found, core.Locator{Strategy: strategy, Selector: selector})
		}
	}
	add(core.StrategyCSS, t.CSS)
	add(core.StrategyXPath, t.XPath)
	add(core.StrategyTagName, t.Tag)
	add(core.StrategyLinkText, t.Link)
	add(core.StrategyPartialLinkText, t.PartialLink)
	if t.Locator != "" {
		loc, err := core.ParseLocator(t.Locator)
		if err != nil {
			return core.Locator{}, wrapParseError(sourcePath, node.Line, err)
		}
		found = append(found, loc)
	}

	switch len(found) {
	case 0:
		return core.Locator{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "missing locator: set one of css, xpath, tag, link, partialLink, locator",
		}
	case 1:
		return found[0], nil
	default:
		return core.Locator{}, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "ambiguous locator: set only one of css, xpath, tag, link, partialLink, locator",
		}
	}
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}

// ParseDirectory parses all YAML files in a directory.
func ParseDirectory(dir string, includeTags, excludeTags []string) ([]*Scenario, error) {
	var scenarios []*Scenario

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !IsScenarioFile(path) {
			return nil
		}

		sc, parseErr := ParseFile(path)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, parseErr)
			return nil
		}

		if ShouldInclude(sc, includeTags, excludeTags) {
			scenarios = append(scenarios, sc)
		}
		return nil
	})

	return scenarios, err
}

// IsScenarioFile reports whether path has a YAML extension.
func IsScenarioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
