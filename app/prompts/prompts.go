package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/foodsync/food-sync/app/openai"
)

// Prompts holds the model name and prompt texts used against OpenAI.
// Fields left empty in the file keep their built-in defaults.
type Prompts struct {
	Model              string `yaml:"model"`
	ClassifyPrompt     string `yaml:"classify_prompt"`
	RecipeSystemPrompt string `yaml:"recipe_system_prompt"`
	RecipeUserTemplate string `yaml:"recipe_user_template"`
}

func defaults() *Prompts {
	return &Prompts{
		ClassifyPrompt:     openai.DefaultClassifyPrompt,
		RecipeSystemPrompt: openai.DefaultRecipeSystemPrompt,
		RecipeUserTemplate: openai.DefaultRecipeUserTemplate,
	}
}

// Load reads prompt overrides from a YAML file. An empty path returns the
// defaults.
func Load(path string) (*Prompts, error) {
	p := defaults()

	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	if overrides.Model != "" {
		p.Model = overrides.Model
	}
	if overrides.ClassifyPrompt != "" {
		p.ClassifyPrompt = overrides.ClassifyPrompt
	}
	if overrides.RecipeSystemPrompt != "" {
		p.RecipeSystemPrompt = overrides.RecipeSystemPrompt
	}
	if overrides.RecipeUserTemplate != "" {
		p.RecipeUserTemplate = overrides.RecipeUserTemplate
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid prompts file %s: %w", path, err)
	}

	return p, nil
}

// Options converts the prompts into OpenAI client options.
func (p *Prompts) Options() []openai.Option {
	return []openai.Option{
		openai.WithModel(p.Model),
		openai.WithClassifyPrompt(p.ClassifyPrompt),
		openai.WithRecipePrompts(p.RecipeSystemPrompt, p.RecipeUserTemplate),
	}
}

func (p *Prompts) validate() error {
	if strings.Count(p.RecipeUserTemplate, "%s") != 1 {
		return fmt.Errorf("recipe_user_template must contain exactly one %%s placeholder")
	}
	return nil
}
