package irc

import (
	"strings"
)

// 频道名前缀
const channelPrefixes = "#&+!"

// inbound 一条 PRIVMSG 归一化后的结果
type inbound struct {
	text      string
	source    string
	isPrivate bool
	isCommand bool
}

// isChannel 判断目标是否为频道
func isChannel(target string) bool {
	return target != "" && strings.ContainsRune(channelPrefixes, rune(target[0]))
}

// classify 判断消息来源与是否为指令，并去掉指令前缀。
//
// 私聊消息一律视为指令；频道消息以 prefix 开头，或以 "<nick>:"、"<nick>," 开头时为指令。
func classify(nick, prefix, target, sender, text string) inbound {
	in := inbound{text: strings.TrimSpace(text)}
	if !isChannel(target) {
		in.source = sender
		in.isPrivate = true
		in.isCommand = true
		if stripped, ok := stripPrefix(in.text, prefix); ok {
			in.text = stripped
		}
		return in
	}

	in.source = target
	if stripped, ok := stripPrefix(in.text, prefix); ok {
		in.text = stripped
		in.isCommand = true
		return in
	}
	if stripped, ok := stripAddress(in.text, nick); ok {
		in.text = stripped
		in.isCommand = true
	}
	return in
}

func stripPrefix(text, prefix string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return text, false
	}
	return strings.TrimSpace(text[len(prefix):]), true
}

// stripAddress 去掉 "nick:" 或 "nick," 形式的点名，昵称不区分大小写
func stripAddress(text, nick string) (string, bool) {
	if nick == "" || len(text) <= len(nick) {
		return text, false
	}
	if !strings.EqualFold(text[:len(nick)], nick) {
		return text, false
	}
	switch text[len(nick)] {
	case ':', ',':
		return strings.TrimSpace(text[len(nick)+1:]), true
	}
	return text, false
}
