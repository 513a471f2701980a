// Package recency keeps, per chat and per category (for stickers: the emoji),
// a bounded history of recently posted items and picks one to echo back.
//
// Recording an item moves it to the front of its category's List, dropping the
// oldest entries beyond the chat's capacity. Selection picks uniformly among
// every entry except the one just recorded.
//
// Cache loads a chat's histories from storage on first use, exactly once even
// under concurrent first access, and holds a per-chat lock across the whole
// load, update and persist sequence. Different chats never wait on each other
// inside the cache; the store itself may still serialize them.
package recency
