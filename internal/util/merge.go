package util

// DeepMerge merges src into dst and returns the result. Nested maps are merged
// recursively while every other value, including slices, is replaced wholesale.
// Neither input map is mutated.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = DeepMerge(dstMap, srcMap)
			continue
		}
		out[k] = v
	}
	return out
}
