package keyboard

import "testing"

func TestSingle(t *testing.T) {
	markup := Single(Button{Text: "I'm back", Unique: "afk_back", Data: "7"})
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 1 {
		t.Fatalf("layout = %+v", markup.InlineKeyboard)
	}
	b := markup.InlineKeyboard[0][0]
	if b.Text != "I'm back" || b.Unique != "afk_back" || b.Data != "7" {
		t.Fatalf("button = %+v", b)
	}
}

func TestInlineDropsEmptyRows(t *testing.T) {
	markup := Inline(
		Row(Button{Text: "a", Unique: "x"}, Button{Text: "b", Unique: "y"}),
		Row(),
		Row(Button{Text: "c", Unique: "z"}),
	)
	rows := markup.InlineKeyboard
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 1 {
		t.Fatalf("layout = %+v", rows)
	}
	if rows[1][0].Unique != "z" {
		t.Fatalf("second row = %+v", rows[1])
	}
}
