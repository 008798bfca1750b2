// internal/services/text_test.go
package services

import "testing"

// TestStripTags 测试富文本降级为纯文本
func TestStripTags(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"纯文本原样保留", "শুধু লেখা", "শুধু লেখা"},
		{"段落标签换行", "<p>প্রথম</p><p>দ্বিতীয়</p>", "প্রথম\nদ্বিতীয়"},
		{"行内标签丢弃", "<b>গাঢ়</b> এবং <i>বাঁকা</i>", "গাঢ় এবং বাঁকা"},
		{"带属性的标签", `<p class="para">লেখা</p>`, "লেখা"},
		{"HTML实体解码", "রাম &amp; শ্যাম&nbsp;!", "রাম & শ্যাম !"},
		{"连续空行压缩", "<p>এক</p><br><br><br><p>দুই</p>", "এক\n\nদুই"},
		{"空输入", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripTags(tc.in); got != tc.want {
				t.Errorf("期望: %q，实际: %q", tc.want, got)
			}
		})
	}
}

// TestTrailingRunes 测试按rune截取尾部，不截断多字节字符
func TestTrailingRunes(t *testing.T) {
	// 5个rune取尾部3个
	if got := TrailingRunes("অআইঈউ", 3); got != "ইঈউ" {
		t.Errorf("尾部截取不正确: %q", got)
	}
	if got := TrailingRunes("ছোট", 100); got != "ছোট" {
		t.Errorf("短于上限的文本应该原样返回: %q", got)
	}
	if got := TrailingRunes("", 10); got != "" {
		t.Errorf("空文本应该返回空: %q", got)
	}
}

// TestBengaliNumeral 测试孟加拉数字转换
func TestBengaliNumeral(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "১"},
		{2, "২"},
		{10, "১০"},
		{25, "২৫"},
		{107, "১০৭"},
		{0, "০"},
	}

	for _, tc := range cases {
		if got := BengaliNumeral(tc.n); got != tc.want {
			t.Errorf("数字 %d 的转换不正确，期望: %s，实际: %s", tc.n, tc.want, got)
		}
	}
}
