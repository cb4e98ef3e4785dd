package visualizer

// Options configures the visualization output.
type Options struct {
	// ShowActions lists each step's actions inside its node
	ShowActions bool

	// ShowConditions labels transitions with their conditions, guards and required actions
	ShowConditions bool

	// ShowBack draws the fixed back targets as extra edges
	ShowBack bool

	// Fenced wraps the diagram in a ```mermaid block for Markdown
	Fenced bool

	// Direction controls diagram flow: "TB" (top to bottom) or "LR" (left to right)
	Direction string

	// HighlightPath highlights the steps a session has walked
	HighlightPath []string

	// Theme controls the color scheme: "default" or "dark"
	Theme string
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowActions:    true,
		ShowConditions: true,
		ShowBack:       false,
		Fenced:         true,
		Direction:      "TB",
		Theme:          "default",
	}
}

// WithShowActions enables/disables action details.
func (o Options) WithShowActions(show bool) Options {
	o.ShowActions = show

	return o
}

// WithShowConditions enables/disables transition labels.
func (o Options) WithShowConditions(show bool) Options {
	o.ShowConditions = show

	return o
}

// WithShowBack enables/disables back edges.
func (o Options) WithShowBack(show bool) Options {
	o.ShowBack = show

	return o
}

// WithFenced enables/disables the Markdown fence.
func (o Options) WithFenced(fenced bool) Options {
	o.Fenced = fenced

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets steps to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithTheme sets the color theme.
func (o Options) WithTheme(theme string) Options {
	o.Theme = theme

	return o
}
