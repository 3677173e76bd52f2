package mcpserver

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// prompt is one embedded markdown prompt. The body may reference arguments
// as {{name}}.
type prompt struct {
	Name        string
	Description string           `yaml:"description"`
	Arguments   []promptArgument `yaml:"arguments"`
	Body        string           `yaml:"-"`
}

type promptArgument struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

// loadPrompts parses every embedded prompt, sorted by name.
func loadPrompts() ([]prompt, error) {
	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil, err
	}

	var prompts []prompt
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".md" {
			continue
		}
		content, err := promptFiles.ReadFile(path.Join("prompts", entry.Name()))
		if err != nil {
			return nil, err
		}
		p, err := parsePrompt(strings.TrimSuffix(entry.Name(), ".md"), content)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].Name < prompts[j].Name })
	return prompts, nil
}

// parsePrompt splits optional YAML frontmatter from the body. Content without
// a closed frontmatter block is all body.
func parsePrompt(name string, content []byte) (prompt, error) {
	p := prompt{Name: name, Body: string(content)}

	rest, ok := bytes.CutPrefix(content, []byte("---\n"))
	if !ok {
		return p, nil
	}
	front, body, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return p, nil
	}
	if err := yaml.Unmarshal(front, &p); err != nil {
		return prompt{}, fmt.Errorf("prompt %s: %w", name, err)
	}
	p.Name = name
	p.Body = string(bytes.TrimPrefix(body, []byte("\n")))
	return p, nil
}

// render substitutes args into the body. Missing required arguments are an
// error; missing optional ones render as "none given".
func (p prompt) render(args map[string]string) (string, error) {
	pairs := make([]string, 0, 2*len(p.Arguments))
	for _, arg := range p.Arguments {
		value := strings.TrimSpace(args[arg.Name])
		if value == "" {
			if arg.Required {
				return "", fmt.Errorf("prompt %s: argument %q is required", p.Name, arg.Name)
			}
			value = "none given"
		}
		pairs = append(pairs, "{{"+arg.Name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(p.Body), nil
}

func (p prompt) mcpPrompt() *mcp.Prompt {
	mp := &mcp.Prompt{Name: p.Name, Description: p.Description}
	for _, arg := range p.Arguments {
		mp.Arguments = append(mp.Arguments, &mcp.PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return mp
}

func (p prompt) handler() mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		text, err := p.render(args)
		if err != nil {
			return nil, err
		}
		return &mcp.GetPromptResult{
			Description: p.Description,
			Messages: []*mcp.PromptMessage{
				{Role: "user", Content: &mcp.TextContent{Text: text}},
			},
		}, nil
	}
}

// registerPrompts registers the embedded prompts. They are compiled in, so a
// parse failure is a build defect and panics.
func (s *Server) registerPrompts() {
	prompts, err := loadPrompts()
	if err != nil {
		panic(err)
	}
	for _, p := range prompts {
		s.server.AddPrompt(p.mcpPrompt(), p.handler())
	}
}
