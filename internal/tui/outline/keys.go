package outline

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	down       key.Binding
	up         key.Binding
	indent     key.Binding
	dedent     key.Binding
	moveUp     key.Binding
	moveDown   key.Binding
	addSibling key.Binding
	addChild   key.Binding
	edit       key.Binding
	remove     key.Binding
	search     key.Binding
	clear      key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j", "down"),
		),
		up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k", "up"),
		),
		indent: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "indent"),
		),
		dedent: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "dedent"),
		),
		moveUp: key.NewBinding(
			key.WithKeys("K"),
			key.WithHelp("K", "move up"),
		),
		moveDown: key.NewBinding(
			key.WithKeys("J"),
			key.WithHelp("J", "move down"),
		),
		addSibling: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("↵", "add"),
		),
		addChild: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "add child"),
		),
		edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		remove: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "remove"),
		),
		search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		clear: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.down, k.up, k.indent, k.dedent, k.moveUp, k.moveDown, k.addSibling, k.addChild, k.edit, k.remove, k.search, k.quit}
}
