package dom

import "github.com/antchfx/xmlquery"

// KeyIndex maps computed key values to the nodes that produced them, in
// document order. One index exists per (document, key id) pair.
type KeyIndex struct {
	entries map[string][]*xmlquery.Node
}

// NewKeyIndex builds an index from value/node pairs.
func NewKeyIndex() *KeyIndex {
	return &KeyIndex{entries: make(map[string][]*xmlquery.Node)}
}

// Add records a node under a key value.
func (k *KeyIndex) Add(value string, node *xmlquery.Node) {
	k.entries[value] = append(k.entries[value], node)
}

// Lookup returns the nodes indexed under value, in insertion order.
func (k *KeyIndex) Lookup(value string) []*xmlquery.Node {
	if k == nil {
		return nil
	}
	return k.entries[value]
}

// Keys returns an existing index or builds it once via the supplied
// function and caches it for the rest of the run.
func (d *Document) Keys(id string, build func() (*KeyIndex, error)) (*KeyIndex, error) {
	if idx, ok := d.keys[id]; ok {
		return idx, nil
	}
	idx, err := build()
	if err != nil {
		return nil, err
	}
	if d.keys == nil {
		d.keys = make(map[string]*KeyIndex)
	}
	d.keys[id] = idx
	return idx, nil
}
