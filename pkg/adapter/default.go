package adapter

import "github.com/foxbox/adapters/pkg/apierror"

func noSuchMethodError(channel, method string) error {
	return apierror.NoSuchMethod(channel, method)
}

func noSuchMethodResults(requests []ValueRequest, method string) []ChannelResult {
	out := make([]ChannelResult, len(requests))
	for i, r := range requests {
		out[i] = ChannelResult{Channel: r.Channel, Err: noSuchMethodError(string(r.Channel), method)}
	}
	return out
}
