package discord

import (
	"bytes"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/lk2023060901/discord-shim-go/internal/chat"
	"github.com/lk2023060901/discord-shim-go/internal/format"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// ParseSnowflake 将 Discord 的字符串 ID 转换为数值。
func ParseSnowflake(id string) (uint64, error) {
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, merr.WrapErrParameterInvalid("snowflake", id)
	}
	return v, nil
}

// FormatSnowflake 将数值 ID 转换为 Discord 的字符串 ID。
func FormatSnowflake(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func channelString(channel protocol.ChannelID) string {
	return FormatSnowflake(uint64(channel))
}

// toMessageSend 将 ContentUnit 转换为一条 embed 消息。
func toMessageSend(unit format.ContentUnit) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       unit.Embed.Title,
		Description: unit.Embed.Description,
		Color:       unit.Embed.Color,
		Fields: lo.Map(unit.Embed.Fields, func(f format.EmbedField, _ int) *discordgo.MessageEmbedField {
			return &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline}
		}),
	}
	if unit.Embed.Author != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: unit.Embed.Author}
	}
	if unit.Embed.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: unit.Embed.ImageURL}
	}

	msg := &discordgo.MessageSend{
		Content: unit.Text,
		Embeds:  []*discordgo.MessageEmbed{embed},
	}
	if unit.Image != nil {
		msg.Files = append(msg.Files, toFile(unit.Image.Filename, unit.Image.Data))
	}
	return msg
}

func toFile(name string, data []byte) *discordgo.File {
	return &discordgo.File{
		Name:   name,
		Reader: bytes.NewReader(data),
	}
}

// toInbound 将 Discord 消息转换为与平台无关的 InboundMessage。
func toInbound(m *discordgo.Message, selfID string) (*chat.InboundMessage, error) {
	channel, err := ParseSnowflake(m.ChannelID)
	if err != nil {
		return nil, err
	}
	msg := &chat.InboundMessage{
		Channel: protocol.ChannelID(channel),
		Content: m.Content,
		Private: m.GuildID == "",
		Attachments: lo.Map(m.Attachments, func(a *discordgo.MessageAttachment, _ int) chat.Attachment {
			return chat.Attachment{Filename: a.Filename, URL: a.URL, Size: a.Size}
		}),
		Embeds: lo.Map(m.Embeds, func(e *discordgo.MessageEmbed, _ int) chat.Embed {
			return chat.Embed{Title: e.Title, HasTitle: e.Title != ""}
		}),
	}
	if m.Author != nil {
		if msg.Author, err = ParseSnowflake(m.Author.ID); err != nil {
			return nil, err
		}
		msg.SelfAuthored = selfID != "" && m.Author.ID == selfID
	}
	return msg, nil
}
