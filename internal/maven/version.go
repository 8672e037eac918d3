package maven

import (
	"strings"
)

// 已知限定符的排序，和 Maven ComparableVersion 保持一致；"" 代表正式版。
var qualifierRank = map[string]int{
	"alpha":     0,
	"beta":      1,
	"milestone": 2,
	"rc":        3,
	"snapshot":  4,
	"":          5,
	"sp":        6,
}

var qualifierAliases = map[string]string{
	"cr":      "rc",
	"ga":      "",
	"final":   "",
	"release": "",
}

// 单字母缩写只在紧跟数字时生效：1.0-a1 是 alpha，1.0-a 不是。
var shortQualifiers = map[string]string{
	"a": "alpha",
	"b": "beta",
	"m": "milestone",
}

const unknownQualifierRank = 7

type itemKind int

const (
	intItem itemKind = iota
	stringItem
	listItem
)

// versionItem 是版本树的节点：数字、限定符，或由 '-' 与数字/字母切换开启的子列表。
type versionItem struct {
	kind  itemKind
	value string
	items []*versionItem
}

func (i *versionItem) isNull() bool {
	switch i.kind {
	case intItem:
		return i.value == "0"
	case stringItem:
		return i.value == ""
	default:
		return len(i.items) == 0
	}
}

// normalize 去掉尾部的空项，跨过子列表继续向前：1.0-alpha 与 1-alpha 等价。
func (i *versionItem) normalize() {
	for idx := len(i.items) - 1; idx >= 0; idx-- {
		last := i.items[idx]
		if last.isNull() {
			i.items = append(i.items[:idx], i.items[idx+1:]...)
			continue
		}
		if last.kind != listItem {
			break
		}
	}
}

// CompareVersions 按 Maven 规则比较两个版本，返回 -1/0/1。
func CompareVersions(a, b string) int {
	return compareItems(parseVersion(a), parseVersion(b))
}

func parseVersion(v string) *versionItem {
	v = strings.ToLower(strings.TrimSpace(v))
	root := &versionItem{kind: listItem}
	list := root
	stack := []*versionItem{root}
	isDigit := false
	start := 0

	descend := func() {
		sub := &versionItem{kind: listItem}
		list.items = append(list.items, sub)
		list = sub
		stack = append(stack, sub)
	}

	for i, r := range v {
		switch {
		case r == '.':
			if i == start {
				list.items = append(list.items, &versionItem{kind: intItem, value: "0"})
			} else {
				list.items = append(list.items, newVersionItem(v[start:i], isDigit, false))
			}
			start = i + 1
		case r == '-':
			if i == start {
				list.items = append(list.items, &versionItem{kind: intItem, value: "0"})
			} else {
				list.items = append(list.items, newVersionItem(v[start:i], isDigit, false))
			}
			start = i + 1
			descend()
		case r >= '0' && r <= '9':
			if !isDigit && i > start {
				list.items = append(list.items, newVersionItem(v[start:i], false, true))
				start = i
				descend()
			}
			isDigit = true
		default:
			if isDigit && i > start {
				list.items = append(list.items, newVersionItem(v[start:i], true, false))
				start = i
				descend()
			}
			isDigit = false
		}
	}
	if len(v) > start {
		list.items = append(list.items, newVersionItem(v[start:], isDigit, false))
	}
	for idx := len(stack) - 1; idx >= 0; idx-- {
		stack[idx].normalize()
	}
	return root
}

func newVersionItem(token string, digit, followedByDigit bool) *versionItem {
	if digit {
		trimmed := strings.TrimLeft(token, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		return &versionItem{kind: intItem, value: trimmed}
	}
	if full, ok := shortQualifiers[token]; ok && followedByDigit {
		token = full
	}
	if alias, ok := qualifierAliases[token]; ok {
		token = alias
	}
	return &versionItem{kind: stringItem, value: token}
}

// compareItems 中 r 为 nil 表示对方已经没有更多项。
func compareItems(l, r *versionItem) int {
	if l == nil {
		if r == nil {
			return 0
		}
		return -compareItems(r, nil)
	}

	switch l.kind {
	case intItem:
		if r == nil {
			return compareNumeric(l.value, "0")
		}
		if r.kind == intItem {
			return compareNumeric(l.value, r.value)
		}
		return 1
	case stringItem:
		if r == nil {
			return compareQualifier(l.value, "")
		}
		if r.kind == stringItem {
			return compareQualifier(l.value, r.value)
		}
		return -1
	}

	if r == nil {
		for _, item := range l.items {
			if c := compareItems(item, nil); c != 0 {
				return c
			}
		}
		return 0
	}
	switch r.kind {
	case intItem:
		return -1
	case stringItem:
		return 1
	}
	n := max(len(l.items), len(r.items))
	for i := 0; i < n; i++ {
		var li, ri *versionItem
		if i < len(l.items) {
			li = l.items[i]
		}
		if i < len(r.items) {
			ri = r.items[i]
		}
		if c := compareItems(li, ri); c != 0 {
			return c
		}
	}
	return 0
}

func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func compareQualifier(a, b string) int {
	ra, okA := qualifierRank[a]
	rb, okB := qualifierRank[b]
	if !okA {
		ra = unknownQualifierRank
	}
	if !okB {
		rb = unknownQualifierRank
	}
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if !okA && !okB {
		return strings.Compare(a, b)
	}
	return 0
}
