package ir

// Node is one element of a Code list
type Node struct {
	Instr Instruction
	next  *Node
}

// Next returns the following node or nil
func (n *Node) Next() *Node { return n.next }

// Code is an append-only singly linked instruction list.
// Appending only ever sets the next pointer of the current tail.
type Code struct {
	head, tail *Node
	n          int
}

// Append links inst at the end of the list
func (c *Code) Append(inst Instruction) {
	node := &Node{Instr: inst}
	if c.tail == nil {
		c.head = node
	} else {
		c.tail.next = node
	}
	c.tail = node
	c.n++
}

// First returns the head node or nil
func (c *Code) First() *Node { return c.head }

// Len returns the number of instructions
func (c *Code) Len() int { return c.n }

// Instructions returns the instructions in emission order
func (c *Code) Instructions() []Instruction {
	out := make([]Instruction, 0, c.n)
	for n := c.head; n != nil; n = n.next {
		out = append(out, n.Instr)
	}
	return out
}

// Labels returns all labels defined in the code
func (c *Code) Labels() []Label {
	var labels []Label
	for n := c.head; n != nil; n = n.next {
		if l, ok := n.Instr.(LabelDef); ok {
			labels = append(labels, l.Label)
		}
	}
	return labels
}

// ReferencedLabels returns all labels that are targets of jumps, in
// first-reference order
func (c *Code) ReferencedLabels() []Label {
	seen := make(map[Label]bool)
	var labels []Label
	add := func(ls ...Label) {
		for _, l := range ls {
			if l != "" && !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	for n := c.head; n != nil; n = n.next {
		switch i := n.Instr.(type) {
		case Goto:
			add(i.Target)
		case IntCmpGoto:
			add(i.Target)
		case FloatCmpGoto:
			add(i.Target)
		case BoolTest:
			add(i.True, i.False)
		case SwitchTable:
			add(i.Default)
		case SwitchHash:
			add(i.Default)
		case Call:
			add(i.Label)
		}
	}
	return labels
}
