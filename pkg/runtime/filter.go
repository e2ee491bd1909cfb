package runtime

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"k8s.io/klog/v2"
)

type lessConnectionFunc func(c1, c2 *Connection) bool

type connectionSorter struct {
	cs        []*Connection
	lessFuncs []lessConnectionFunc
}

func ByConnection(less ...lessConnectionFunc) *connectionSorter {
	return &connectionSorter{
		lessFuncs: less,
	}
}

func (cs *connectionSorter) Sort(conns []*Connection) {
	cs.cs = conns
	sort.Sort(cs)
}

func (cs *connectionSorter) Len() int {
	return len(cs.cs)
}

func (cs *connectionSorter) Swap(i, j int) {
	cs.cs[i], cs.cs[j] = cs.cs[j], cs.cs[i]
}

func (cs *connectionSorter) Less(i, j int) bool {
	return cs.less(cs.cs[i], cs.cs[j])
}

func (cs *connectionSorter) less(p, q *Connection) bool {
	var k int
	for k = 0; k < len(cs.lessFuncs)-1; k++ {
		less := cs.lessFuncs[k]
		switch {
		case less(p, q):
			return true
		case less(q, p):
			return false
		}
	}
	return cs.lessFuncs[k](p, q)
}

type NameFilterFunc struct {
	Eq         string
	In         []string
	Contains   string
	StartsWith string
	EndsWith   string
}

type ConnectionFilter struct {
	Name    interface{}
	Id      string
	Host    string
	Enabled *bool
}

type predicateConnection func(c *Connection) bool

func ParseConnectionFilter(filter *ConnectionFilter) []predicateConnection {
	predicates := make([]predicateConnection, 0)

	if len(filter.Id) > 0 {
		p := func(c *Connection) bool {
			return filter.Id == c.GetID()
		}
		predicates = append(predicates, p)
	}

	if len(filter.Host) > 0 {
		p := func(c *Connection) bool {
			return filter.Host == c.Host
		}
		predicates = append(predicates, p)
	}

	if filter.Enabled != nil {
		p := func(c *Connection) bool {
			return *filter.Enabled == c.Enabled
		}
		predicates = append(predicates, p)
	}

	if filter.Name != nil {
		if name, ok := filter.Name.(string); ok {
			p := func(c *Connection) bool {
				return name == c.GetName()
			}
			predicates = append(predicates, p)
		} else {
			var ff NameFilterFunc
			if err := mapstructure.Decode(filter.Name, &ff); err != nil {
				klog.V(3).InfoS("Failed to parse filter.name", "err", err)
			}
			if len(ff.Eq) > 0 {
				p := func(c *Connection) bool {
					return ff.Eq == c.GetName()
				}
				predicates = append(predicates, p)
			}
			if len(ff.In) > 0 {
				p := func(c *Connection) bool {
					for _, name := range ff.In {
						if name == c.GetName() {
							return true
						}
					}
					return false
				}
				predicates = append(predicates, p)
			}
			if len(ff.Contains) > 0 {
				p := func(c *Connection) bool {
					return strings.Contains(c.GetName(), ff.Contains)
				}
				predicates = append(predicates, p)
			}
			if len(ff.StartsWith) > 0 {
				p := func(c *Connection) bool {
					return strings.HasPrefix(c.GetName(), strings.TrimSpace(ff.StartsWith))
				}
				predicates = append(predicates, p)
			}
			if len(ff.EndsWith) > 0 {
				p := func(c *Connection) bool {
					return strings.HasSuffix(c.GetName(), strings.TrimSpace(ff.EndsWith))
				}
				predicates = append(predicates, p)
			}
		}
	}

	return predicates
}
