package actor

// Step applies a reducer to a single (state, input) pair. It does not execute
// effects and exists for reducer-level unit tests.
func Step[S any](state S, input Input, reducer ReducerFunc[S]) (S, []Effect) {
	return reducer(state, input)
}

// Replay folds a sequence of inputs through a reducer and returns the final
// state along with every effect produced, in order.
func Replay[S any](state S, reducer ReducerFunc[S], inputs ...Input) (S, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effects []Effect
		state, effects = reducer(state, in)
		all = append(all, effects...)
	}
	return state, all
}
