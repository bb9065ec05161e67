package dedup

// unionFind joins pairwise matches into transitive groups: if A matches
// B and B matches C, all three land in one group even though A and C
// never matched directly.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

func (u *unionFind) find(key string) string {
	if _, ok := u.parent[key]; !ok {
		u.parent[key] = key
		return key
	}
	// Path compression
	root := key
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[key] != root {
		u.parent[key], key = root, u.parent[key]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// groups returns all components with at least two members.
func (u *unionFind) groups() map[string][]string {
	out := make(map[string][]string)
	for key := range u.parent {
		root := u.find(key)
		out[root] = append(out[root], key)
	}
	for root, members := range out {
		if len(members) < 2 {
			delete(out, root)
		}
	}
	return out
}
