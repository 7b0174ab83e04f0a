package canvas

import (
	"context"
	"strings"

	"canvasflow/internal/domain"
)

// Query returns exported records of the blocks matching selector within
// scope. selector is "*" or a comma-separated list of block kinds. scope
// is a group id, a grouped block id, or empty for the whole page.
func (c *Canvas) Query(ctx context.Context, pageID, scope, selector string) ([]map[string]any, error) {
	blocks, err := c.scopeBlocks(pageID, scope)
	if err != nil {
		return nil, err
	}
	match := parseSelector(selector)

	out := make([]map[string]any, 0, len(blocks))
	for i := range blocks {
		b := &blocks[i]
		if !match(b.Type) {
			continue
		}
		rec, err := Export(b)
		if err != nil {
			return nil, err
		}
		if v, ok := c.variants.Lookup(b.Type); ok {
			val, err := v.ReadValue(ctx, b)
			if err != nil {
				return nil, err
			}
			rec["value"] = val
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Canvas) scopeBlocks(pageID, scope string) ([]domain.Block, error) {
	if scope != "" {
		g, err := c.Group(scope)
		if err != nil {
			return nil, err
		}
		if g != nil {
			return c.blocks.ListBlocksByGroup(g.ID)
		}
	}
	return c.blocks.ListBlocks(pageID)
}

func parseSelector(selector string) func(domain.BlockType) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" || selector == "*" {
		return func(domain.BlockType) bool { return true }
	}
	kinds := make(map[domain.BlockType]bool)
	for _, k := range strings.Split(selector, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[domain.BlockType(k)] = true
		}
	}
	return func(t domain.BlockType) bool { return kinds[t] }
}
