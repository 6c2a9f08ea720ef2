package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Classification
	}{
		{
			name: "outer header with decoration",
			line: "## 🚁 Plum 25R3.2 Sprint 2 : ORI-114277 整体进展综述",
			want: Classification{Role: RoleOuterHeader, CycleID: "Plum 25R3.2 Sprint 2"},
		},
		{
			name: "outer header without decoration",
			line: "## Sprint-7: WK-42 overview",
			want: Classification{Role: RoleOuterHeader, CycleID: "Sprint-7"},
		},
		{
			name: "two-marker header without colon",
			line: "## 👥 团队成员详细动态 (过去两天)",
			want: Classification{Role: RoleNone},
		},
		{
			name: "user header",
			line: "### 👤 Garry Peng",
			want: Classification{Role: RoleUserHeader, User: "Garry Peng"},
		},
		{
			name: "user header without decoration",
			line: "### Ada",
			want: Classification{Role: RoleUserHeader, User: "Ada"},
		},
		{
			name: "task header",
			line: "#### 🔹 WK-42 Fix crash",
			want: Classification{Role: RoleTaskHeader, ItemID: "WK-42", Title: "Fix crash"},
		},
		{
			name: "task header without title",
			line: "#### ORI-136130",
			want: Classification{Role: RoleTaskHeader, ItemID: "ORI-136130"},
		},
		{
			name: "four markers without identifier",
			line: "#### 🔹 just some heading",
			want: Classification{Role: RoleNone},
		},
		{
			name: "date marker",
			line: "* **2026-01-20**:",
			want: Classification{Role: RoleDateMarker, Date: "2026-01-20"},
		},
		{
			name: "bracketed date marker indented",
			line: "  * **[2024-05-21]**:",
			want: Classification{Role: RoleDateMarker, Date: "2024-05-21"},
		},
		{
			name: "unbalanced bracket date",
			line: "* **[2024-05-21**:",
			want: Classification{Role: RoleNone},
		},
		{
			name: "impossible calendar date",
			line: "* **2026-02-30**:",
			want: Classification{Role: RoleNone},
		},
		{
			name: "item bullet",
			line: "    * **[Worklog 1h 30m]** fixed validation",
			want: Classification{Role: RoleItemBullet, Tag: "Worklog 1h 30m", Text: "fixed validation"},
		},
		{
			name: "item bullet with empty text and trailing space",
			line: "    * **[Worklog 1h]** ",
			want: Classification{Role: RoleItemBullet, Tag: "Worklog 1h"},
		},
		{
			name: "unindented bullet is not an item",
			line: "* **[Comment]** hello",
			want: Classification{Role: RoleNone},
		},
		{
			name: "continuation text",
			line: "!image-2026-01-22-17-37-48-539.png!",
			want: Classification{Role: RoleNone},
		},
		{
			name: "crlf",
			line: "### 👤 Ada\r",
			want: Classification{Role: RoleUserHeader, User: "Ada"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.line))
		})
	}
}

func TestClassifyHeaderWeights(t *testing.T) {
	// A task header must never be read as a user header and vice versa.
	assert.Equal(t, RoleTaskHeader, Classify("#### 🔹 WK-1 Title").Role)
	assert.NotEqual(t, RoleUserHeader, Classify("#### Ada").Role)
	assert.Equal(t, RoleUserHeader, Classify("### WK-1 Title").Role)
	assert.NotEqual(t, RoleUserHeader, Classify("##### 👤 Ada").Role)
	assert.NotEqual(t, RoleOuterHeader, Classify("### Sprint: 1").Role)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "task_header", RoleTaskHeader.String())
	assert.Equal(t, "none", RoleNone.String())
}

func TestItemIDHelpers(t *testing.T) {
	assert.True(t, IsItemID("WK-42"))
	assert.True(t, IsItemID("ORI-136135"))
	assert.False(t, IsItemID("wk-42"))
	assert.False(t, IsItemID("WK-42 Fix"))
	assert.False(t, IsItemID("WK-"))

	id, ok := FindItemID("Progress for OPS-7 (daily)")
	assert.True(t, ok)
	assert.Equal(t, "OPS-7", id)

	_, ok = FindItemID("no id here")
	assert.False(t, ok)
}
