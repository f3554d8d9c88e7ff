package pagelem

import "fmt"

// elementParents may hold structural page elements.
var elementParents = kindSet(NodeRoot, NodeBody, NodeAny, NodeNamed, NodeNot,
	NodeRepeat, NodeChoice, NodeGroup, NodeDeep, NodeRootReset, NodeMatchByID,
	NodeTemplate, NodeSlot, NodeUseTemplate)

// valueParents may hold text bindings, regexes, scoped data and slot content.
var valueParents = kindSet(NodeBody, NodeAny, NodeNamed, NodeNot, NodeRepeat,
	NodeChoice, NodeGroup, NodeDeep, NodeRootReset, NodeMatchByID, NodeTemplate,
	NodeSlot, NodeUseTemplate)

var textParents = kindSet(NodeBody, NodeAny, NodeNamed, NodeNot, NodeRepeat,
	NodeChoice, NodeGroup, NodeDeep, NodeRootReset, NodeMatchByID, NodeTemplate,
	NodeSlot, NodeUseTemplate, NodeRegex, NodeScopedData, NodeScript)

func kindSet(kinds ...NodeKind) map[NodeKind]bool {
	m := make(map[NodeKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// mayContain enforces the parent/child relation of the markup.
func mayContain(parent, child *Element) error {
	ok := false
	switch child.Kind {
	case NodeText:
		ok = textParents[parent.Kind]
	case NodeTextBinding, NodeRegex, NodeScopedData, NodeSlotContent:
		ok = valueParents[parent.Kind]
	case NodeHead, NodeBody:
		ok = parent.Kind == NodeRoot
	case NodeTemplate:
		ok = parent.Kind == NodeHead || parent.Kind == NodeBody || parent.Kind == NodeRoot
	case NodeLink, NodeScript:
		ok = parent.Kind == NodeHead
	case NodeRoot:
		ok = false
	default:
		ok = elementParents[parent.Kind]
	}
	if !ok {
		return fmt.Errorf("%s cannot contain %s", parent, child)
	}
	return nil
}
