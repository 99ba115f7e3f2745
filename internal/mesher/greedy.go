package mesher

// Rect прямоугольник в координатах плоскости (микро-ячейки)
type Rect struct {
	U, V int
	W, H int
	Code uint32
}

// greedyMerge разбивает маску W×H на максимальные прямоугольники
// одинакового кода. Строковый проход: сначала максимальный пробег по u,
// затем расширение по v, пока вся строка кандидата совпадает.
// Маска обнуляется по мере выдачи.
func greedyMerge(mask []uint32, w, h int, out []Rect) []Rect {
	for v := 0; v < h; v++ {
		row := v * w
		for u := 0; u < w; {
			code := mask[row+u]
			if code == 0 {
				u++
				continue
			}
			du := 1
			for u+du < w && mask[row+u+du] == code {
				du++
			}
			dv := 1
		grow:
			for v+dv < h {
				next := (v + dv) * w
				for k := 0; k < du; k++ {
					if mask[next+u+k] != code {
						break grow
					}
				}
				dv++
			}
			for j := 0; j < dv; j++ {
				base := (v+j)*w + u
				for k := 0; k < du; k++ {
					mask[base+k] = 0
				}
			}
			out = append(out, Rect{U: u, V: v, W: du, H: dv, Code: code})
			u += du
		}
	}
	return out
}
